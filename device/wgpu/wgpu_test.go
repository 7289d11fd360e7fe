// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"strings"
	"testing"

	"github.com/gogpu/catalina/device"
)

// halLessProvider implements device.Handle but exposes no HAL access.
type halLessProvider struct {
	device.NullHandle
}

// badHALProvider exposes the HAL methods but returns the wrong types.
type badHALProvider struct {
	device.NullHandle
}

func (badHALProvider) HalDevice() any { return "not a device" }
func (badHALProvider) HalQueue() any  { return "not a queue" }

func TestAdoptRejectsProviderWithoutHAL(t *testing.T) {
	if _, err := Adopt(halLessProvider{}); err == nil {
		t.Fatal("Adopt should fail for a provider without HAL access")
	}
}

func TestAdoptRejectsWrongHALTypes(t *testing.T) {
	_, err := Adopt(badHALProvider{})
	if err == nil {
		t.Fatal("Adopt should fail for a provider with non-HAL handles")
	}
	if !strings.Contains(err.Error(), "hal.Device") {
		t.Errorf("err = %v, want mention of hal.Device", err)
	}
}

func TestAdoptNilHandle(t *testing.T) {
	if _, err := Adopt(nil); err == nil {
		t.Fatal("Adopt(nil) should fail")
	}
}
