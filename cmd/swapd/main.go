// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package main

import (
	"flag"
	"os"

	"github.com/swapd/swapd/internal/supervisor"
	_ "github.com/swapd/swapd/internal/version"

	logger "github.com/swapd/swapd/internal/log"
)

func main() {
	log := logger.Default()
	logger.SetStdLogger("")

	flag.Parse()

	if os.Getenv("DEBUG") != "" {
		log.EnableDebug(true)
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Error("usage: %s {start|stop|status|compression|autoconfig}", os.Args[0])
		os.Exit(2)
	}

	os.Exit(supervisor.Run(args))
}
