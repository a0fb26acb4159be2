// This file is part of x86core.
//
// x86core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// x86core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with x86core.  If not, see <https://www.gnu.org/licenses/>.

// Package ansi defines the small set of ANSI control codes logger's
// Colorizer needs to pick out a fault trace from surrounding log lines.
package ansi

import (
	"fmt"
	"strings"
)

const (
	colBlack   = 0
	colRed     = 1
	colGreen   = 2
	colYelow   = 3
	colBlue    = 4
	colMagenta = 5
	colCyan    = 6
	colWhite   = 7
	colDefault = 9
)

const (
	targetPen       = 3
	targetBrightPen = 9
)

// DimPens is the table of pastel colors to be used for text.
var DimPens map[string]string

// NormalPen is the CSI sequence for regular text.
var NormalPen string

func init() {
	var err error

	DimPens = make(map[string]string)

	NormalPen, err = ColorBuild("", false)
	if err != nil {
		fmt.Println(err)
	}

	for _, c := range []string{"red", "green", "yellow", "blue", "magenta", "cyan", "white"} {
		DimPens[c], err = ColorBuild(c, false)
		if err != nil {
			fmt.Println(err)
		}
	}
}

// ColorBuild creates the ANSI sequence to set the foreground pen colour.
func ColorBuild(pen string, brightPen bool) (string, error) {
	s := strings.Builder{}
	s.Grow(16)
	s.WriteString("\033[")

	if pen != "" {
		penType := targetPen
		if brightPen {
			penType = targetBrightPen
		}
		switch strings.ToUpper(pen) {
		case "BLACK":
			s.WriteString(fmt.Sprintf("%d%d", penType, colBlack))
		case "RED":
			s.WriteString(fmt.Sprintf("%d%d", penType, colRed))
		case "GREEN":
			s.WriteString(fmt.Sprintf("%d%d", penType, colGreen))
		case "YELLOW":
			s.WriteString(fmt.Sprintf("%d%d", penType, colYelow))
		case "BLUE":
			s.WriteString(fmt.Sprintf("%d%d", penType, colBlue))
		case "MAGENTA":
			s.WriteString(fmt.Sprintf("%d%d", penType, colMagenta))
		case "CYAN":
			s.WriteString(fmt.Sprintf("%d%d", penType, colCyan))
		case "WHITE":
			s.WriteString(fmt.Sprintf("%d%d", penType, colWhite))
		case "NORMAL":
			s.WriteString(fmt.Sprintf("%d%d", penType, colDefault))
		default:
			return "", fmt.Errorf("unknown ANSI pen (%s)", pen)
		}
	}

	s.WriteString("m")
	return s.String(), nil
}
