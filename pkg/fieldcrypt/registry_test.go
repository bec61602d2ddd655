package fieldcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{"ssn", "dob", "address", "phone"}, r.Fields("Employee"))
	assert.Equal(t, []string{"ssn", "dob"}, r.Fields("Dependent"))
	assert.Equal(t, []string{"confirmation"}, r.Fields("Enrollment"))
	assert.Equal(t, []string{"Dependent", "Employee", "Enrollment"}, r.Entities())
}

func TestRegistry_UnregisteredEntity(t *testing.T) {
	r := DefaultRegistry()

	assert.False(t, r.IsRegistered("Plan"))
	assert.Nil(t, r.Fields("Plan"))
}

func TestNewRegistry_CopiesInput(t *testing.T) {
	entries := map[string][]string{"Employee": {"ssn"}}
	r := NewRegistry(entries)

	entries["Employee"][0] = "mutated"
	assert.Equal(t, []string{"ssn"}, r.Fields("Employee"))
}
