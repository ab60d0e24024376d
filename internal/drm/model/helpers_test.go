// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

var fixedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
