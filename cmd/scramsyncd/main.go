// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import "github.com/scramsync/scramsync/cmd/scramsyncd/command"

func main() {
	command.Execute()
}
