//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides a GPU device built on WebGPU.
//
// Kernels are WGSL compute programs supplied by the caller, keyed by kernel ID.
// Commands without a program fail with an error wrapping the not-implemented
// sentinel instead of falling back to another device.
//
// Example:
//
//	gpu, err := webgpu.New(webgpu.Sources{id: wgsl})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gpu.Release()
//
//	cfg := scheduler.DefaultConfig()
//	cfg.DispatchLimit = gpu.DispatchLimit()
//	s := scheduler.New(gpu, cfg)
package webgpu

import (
	"github.com/born-ml/dispatch/internal/backend/webgpu"
	"github.com/born-ml/dispatch/internal/device"
)

// Device is the WebGPU compute device.
type Device = webgpu.Device

// Buffer is a WebGPU storage buffer.
type Buffer = webgpu.Buffer

// ProgramSource supplies WGSL programs for kernels.
type ProgramSource = webgpu.ProgramSource

// Sources is a map-backed ProgramSource.
type Sources = webgpu.Sources

// MemoryStats reports device buffer usage.
type MemoryStats = webgpu.MemoryStats

var _ device.Device = (*Device)(nil)

// New opens the high-performance GPU adapter.
func New(source ProgramSource) (*Device, error) {
	return webgpu.New(source)
}

// ParamsWGSL returns the WGSL declaration of the kernel parameter block.
func ParamsWGSL() string {
	return webgpu.ParamsWGSL()
}
