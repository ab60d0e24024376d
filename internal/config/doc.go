// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the player daemon configuration.
//
// Precedence is ENV > file > defaults. The YAML file is parsed strictly:
// unknown keys and trailing documents are errors. Environment overrides use
// the GSTPLAYER_ prefix. ConfigHolder hot-reloads the file and Manager saves
// it atomically.
package config
