// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sky

import "fmt"

// RangeSetting selects one entry of the gain table and one of the integration table.
type RangeSetting struct {
	Gain        int `json:"gain"`
	Integration int `json:"integration"`
}

func (s RangeSetting) String() string {
	return fmt.Sprintf("g%d/i%d", s.Gain, s.Integration)
}

// Level is one row of a device range table: the register code written to the
// hardware and the numeric factor it corresponds to (gain multiplier or
// integration time in milliseconds).
type Level struct {
	Code  byte
	Scale float64
}
