package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLocation(t *testing.T) {
	for _, ok := range []string{"", "24.7136,46.6753", "-33.9, 151.2", "90,180"} {
		assert.NoError(t, ValidateLocation(ok), ok)
	}
	for _, bad := range []string{"riyadh", "1,2,3", "91,0", "0,-181", "a,b"} {
		assert.Error(t, ValidateLocation(bad), bad)
	}
}

func TestCanTakeOrders(t *testing.T) {
	d := Driver{IsActive: true, IsAvailable: true}
	assert.True(t, d.CanTakeOrders())
	d.IsAvailable = false
	assert.False(t, d.CanTakeOrders())
	d = Driver{IsActive: false, IsAvailable: true}
	assert.False(t, d.CanTakeOrders())
}

func TestDriverPatchApply(t *testing.T) {
	d := Driver{Name: "Ali", Phone: "0500", IsActive: true}
	name, avail := "Ali Hassan", true
	DriverPatch{Name: &name, IsAvailable: &avail}.Apply(&d)
	assert.Equal(t, "Ali Hassan", d.Name)
	assert.Equal(t, "0500", d.Phone)
	assert.True(t, d.IsAvailable)
	assert.True(t, d.IsActive)
}

func TestOrderAssigned(t *testing.T) {
	var o Order
	assert.False(t, o.Assigned())
	empty := ""
	o.DriverID = &empty
	assert.False(t, o.Assigned())
	id := "d1"
	o.DriverID = &id
	assert.True(t, o.Assigned())
	assert.True(t, o.AssignedTo("d1"))
	assert.False(t, o.AssignedTo("d2"))
}
