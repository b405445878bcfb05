// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package errs

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// FormatError renders e for a terminal consumer, colorizing by severity when
// w is an interactive terminal and falling back to plain text otherwise.
// It never touches the process's own stdio beyond what w writes to.
func FormatError(w io.Writer, e *LoadError) string {
	plain := fmt.Sprintf("[%s] %s", e.Severity, e.Error())
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		return plain
	}
	switch e.Severity {
	case SeverityFatal:
		return color.New(color.FgRed, color.Bold).Sprint(plain)
	case SeverityError:
		return color.New(color.FgRed).Sprint(plain)
	case SeverityWarning:
		return color.New(color.FgYellow).Sprint(plain)
	default:
		return plain
	}
}
