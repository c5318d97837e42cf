// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendTOML   = "toml"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendTOML, BackendSQLite, BackendMemory}

// Open returns a Store for backend. path is ignored for the memory backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendTOML, "":
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", backend)
	}
}
