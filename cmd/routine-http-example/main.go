/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Command routine-http-example boots an embeddable HTTP server as a
// standalone process, for manual testing and as a reference for
// programs embedding the engine directly.
package main

import "github.com/AlexaFrom/routine-http/cmd/routine-http-example/cmd"

func main() {
	cmd.Execute()
}
