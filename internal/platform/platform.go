// Copyright 2026 The Loom Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package platform exposes the deployment mode of the running server.
// The mode decides whether unknown identities may be auto-provisioned.
package platform

// Mode identifies the deployment configuration
type Mode string

const (
	// ModeSingleTenant is the open-source deployment: exactly one
	// organization, first caller becomes its owner.
	ModeSingleTenant Mode = "single_tenant"
	// ModeMultiTenant disables auto-provisioning; identities are created
	// through explicit tenant-admin flows.
	ModeMultiTenant Mode = "multi_tenant"
)

// Valid reports whether m is a known deployment mode
func (m Mode) Valid() bool {
	return m == ModeSingleTenant || m == ModeMultiTenant
}

// Provider reports the current deployment mode
type Provider interface {
	Mode() Mode
}

// StaticProvider is a Provider fixed at startup from configuration
type StaticProvider struct {
	mode Mode
}

// NewStaticProvider creates a provider that always returns mode
func NewStaticProvider(mode Mode) *StaticProvider {
	return &StaticProvider{mode: mode}
}

// Mode returns the configured deployment mode
func (p *StaticProvider) Mode() Mode {
	return p.mode
}
