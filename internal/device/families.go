package device

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueFamilies are the families the graphics and present queues come from.
type QueueFamilies struct {
	Graphics int
	Present  int
}

// Unique lists each family once, graphics first.
func (f QueueFamilies) Unique() []int {
	if f.Graphics == f.Present {
		return []int{f.Graphics}
	}
	return []int{f.Graphics, f.Present}
}

// pickQueueFamilies prefers a single family that can both draw and present.
// Otherwise it takes the first graphics family and the first present family.
// The boolean is false when either is missing.
func pickQueueFamilies(flags []core1_0.QueueFlags, presentSupport func(family int) (bool, error)) (QueueFamilies, bool, error) {
	graphics, present := -1, -1

	for family, queueFlags := range flags {
		supported, err := presentSupport(family)
		if err != nil {
			return QueueFamilies{}, false, errors.Wrapf(err, "query present support of queue family %d", family)
		}

		isGraphics := queueFlags&core1_0.QueueGraphics != 0
		if isGraphics && supported {
			return QueueFamilies{Graphics: family, Present: family}, true, nil
		}

		if isGraphics && graphics < 0 {
			graphics = family
		}
		if supported && present < 0 {
			present = family
		}
	}

	if graphics < 0 || present < 0 {
		return QueueFamilies{}, false, nil
	}
	return QueueFamilies{Graphics: graphics, Present: present}, true, nil
}
