package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/federation"
	"github.com/dreamware/bazar/internal/rowstore"
)

func desc(tenant, url string) federation.EndpointDescriptor {
	return federation.EndpointDescriptor{
		TenantID:    tenant,
		DisplayName: "Shop " + tenant,
		EndpointURL: url,
	}
}

func TestDirectoryRegisterAndResolve(t *testing.T) {
	d := NewDirectory(nil, zap.NewNop())

	require.NoError(t, d.Register(desc("T1", "http://t1:8081")))
	require.NoError(t, d.Register(desc("T2", "http://t2:8081")))

	got, err := d.Resolve("T1")
	require.NoError(t, err)
	assert.Equal(t, "http://t1:8081", got.EndpointURL)

	_, err = d.Resolve("T9")
	assert.True(t, federation.IsKind(err, federation.KindNotFound),
		"expected NotFound, got %v", err)
}

func TestDirectoryPreservesRegistrationOrder(t *testing.T) {
	d := NewDirectory(nil, zap.NewNop())
	require.NoError(t, d.Register(desc("T1", "http://t1")))
	require.NoError(t, d.Register(desc("T2", "http://t2")))
	require.NoError(t, d.Register(desc("T3", "http://t3")))

	// Overwriting T1 must not move it to the back.
	require.NoError(t, d.Register(desc("T1", "http://t1-new")))

	list := d.List()
	require.Len(t, list, 3)
	assert.Equal(t, "T1", list[0].TenantID)
	assert.Equal(t, "http://t1-new", list[0].EndpointURL)
	assert.Equal(t, "T2", list[1].TenantID)
	assert.Equal(t, "T3", list[2].TenantID)
}

func TestDirectoryValidation(t *testing.T) {
	d := NewDirectory(nil, zap.NewNop())

	err := d.Register(federation.EndpointDescriptor{TenantID: "T1"})
	assert.True(t, federation.IsKind(err, federation.KindValidation))

	err = d.Register(federation.EndpointDescriptor{EndpointURL: "http://t1"})
	assert.True(t, federation.IsKind(err, federation.KindValidation))
}

func TestDirectoryListReturnsCopies(t *testing.T) {
	d := NewDirectory(nil, zap.NewNop())
	require.NoError(t, d.Register(desc("T1", "http://t1")))

	list := d.List()
	list[0].EndpointURL = "http://mutated"

	again, err := d.Resolve("T1")
	require.NoError(t, err)
	assert.Equal(t, "http://t1", again.EndpointURL)
}

func TestDirectoryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.jsonl")
	openStore := func() *rowstore.Store {
		tape, err := rowstore.NewFileTape(path)
		require.NoError(t, err)
		store, err := rowstore.Open(rowstore.Options{
			Name: "endpoints", Schema: EndpointSchema, Tape: tape,
		})
		require.NoError(t, err)
		return store
	}

	d := NewDirectory(openStore(), zap.NewNop())
	require.NoError(t, d.Register(desc("T1", "http://t1")))
	require.NoError(t, d.Register(desc("T2", "http://t2")))
	require.NoError(t, d.Register(desc("T1", "http://t1-edited")))

	reloaded := NewDirectory(openStore(), zap.NewNop())
	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "T1", list[0].TenantID)
	assert.Equal(t, "http://t1-edited", list[0].EndpointURL)
	assert.Equal(t, "T2", list[1].TenantID)
}
