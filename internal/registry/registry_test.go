package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aiguard/internal/contract"
	"github.com/roach88/aiguard/internal/ir"
)

func tagsContract(id string) *contract.Contract {
	return &contract.Contract{
		ID: id,
		Fields: []contract.FieldRule{
			{Name: "tags", Type: contract.TypeStringList, MaxItems: 10, Default: ir.StringList("general")},
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tagsContract("tags")))

	c, err := r.Lookup("tags")
	require.NoError(t, err)
	assert.Equal(t, "tags", c.ID)
}

func TestLookupUnknown(t *testing.T) {
	r := New()
	_, err := r.Lookup("nope")
	require.Error(t, err)
	assert.True(t, contract.IsUnknownContract(err))
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tagsContract("tags")))

	err := r.Register(tagsContract("tags"))
	require.Error(t, err)
	assert.True(t, contract.IsDuplicateContract(err))
}

func TestRegisterInvalid(t *testing.T) {
	r := New()
	bad := tagsContract("tags")
	bad.Fields[0].Default = ir.StringList("General", "general")

	err := r.Register(bad)
	require.Error(t, err)
	assert.True(t, contract.IsInvalidContract(err))
	assert.Contains(t, err.Error(), "E109")

	_, err = r.Lookup("tags")
	assert.True(t, contract.IsUnknownContract(err), "invalid contract must not be registered")
}

func TestSeal(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(tagsContract("a")))
	r.Seal()
	assert.True(t, r.Sealed())

	err := r.Register(tagsContract("b"))
	var ce *contract.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, contract.ErrCodeRegistrySealed, ce.Code)

	_, err = r.Lookup("a")
	assert.NoError(t, err)
}

func TestIDsSorted(t *testing.T) {
	r := New()
	for _, id := range []string{"tags", "content_analysis", "summary"} {
		r.MustRegister(tagsContract(id))
	}
	assert.Equal(t, []string{"content_analysis", "summary", "tags"}, r.IDs())
}

func TestMustRegisterPanics(t *testing.T) {
	r := New()
	r.MustRegister(tagsContract("tags"))
	assert.Panics(t, func() { r.MustRegister(tagsContract("tags")) })
}

func TestConcurrentLookups(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		r.MustRegister(tagsContract(fmt.Sprintf("c%d", i)))
	}
	r.Seal()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := r.Lookup(fmt.Sprintf("c%d", i%5))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
