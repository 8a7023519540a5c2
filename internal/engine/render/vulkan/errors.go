package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"
)

var (
	// ErrNoDevice is returned when no physical device can render and
	// present to the window.
	ErrNoDevice = errors.New("no suitable vulkan device")
	// ErrUnsupportedTransition is returned for image layout transitions
	// the backend has no barrier for.
	ErrUnsupportedTransition = errors.New("unsupported image layout transition")
	// ErrNoMemoryType is returned when no memory type matches a request.
	ErrNoMemoryType = errors.New("no matching memory type")
	// ErrNoFreeSlot is returned by AcquireBackBuffer when every frame slot
	// of the view is still acquired.
	ErrNoFreeSlot = errors.New("no free frame slot")
)

// vkError converts a failed result into an error naming the call.
func vkError(ret vk.Result, call string) error {
	if ret == vk.Success {
		return nil
	}
	return fmt.Errorf("%s: %w (%d)", call, vk.Error(ret), ret)
}
