package webcodecs

import (
	"fmt"
	"sync/atomic"
)

// Provider identifies a backend implementation.
type Provider uint8

const (
	ProviderAuto    Provider = iota // Let the registry choose
	ProviderGo                      // Pure-Go PCM and G.711
	ProviderLibopus                 // libopus loaded at runtime
	ProviderFFmpeg                  // libavcodec via go-astiav
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL  License = iota // Copyleft - requires source disclosure
	LicenseLGPL                // Weak copyleft - dynamic linking allowed
	LicenseBSD                 // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseLGPL:
		return "LGPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// providerMeta contains static metadata about a provider.
type providerMeta struct {
	Name    string
	License License
	Native  bool // Requires a native library at runtime
}

// Static metadata table - indexed by Provider.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:    {"auto", LicenseBSD, false},
	ProviderGo:      {"go", LicenseBSD, false},
	ProviderLibopus: {"libopus", LicenseBSD, true},
	ProviderFFmpeg:  {"ffmpeg", LicenseLGPL, true},
}

// Runtime availability - set by init() in backend implementations.
var providerAvailable [providerCount]atomic.Bool

func init() {
	setProviderAvailable(ProviderGo)
}

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// ParseProvider resolves a provider name as returned by String.
func ParseProvider(name string) (Provider, error) {
	for p := ProviderAuto; p < providerCount; p++ {
		if providerInfo[p].Name == name {
			return p, nil
		}
	}
	return ProviderAuto, fmt.Errorf("unknown provider %q", name)
}

// Providers lists every known provider except ProviderAuto.
func Providers() []Provider {
	result := make([]Provider, 0, providerCount-1)
	for p := ProviderGo; p < providerCount; p++ {
		result = append(result, p)
	}
	return result
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Native returns true if the provider loads a native library.
func (p Provider) Native() bool {
	if p >= providerCount {
		return false
	}
	return providerInfo[p].Native
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// setProviderAvailable marks a provider as available (called by implementations).
func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}
