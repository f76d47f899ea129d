// Copyright 2019 Intel Corporation. All Rights Reserved.
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

package log

var configHelp = `
Logging and debugging messages.

Logging and debug messages are controlled with command line options; the
key=value configuration files hold no logger settings. You can control the
lowest severity of messages to pass through (--logger-level), which log
sources are enabled (--logger-sources), and which log sources are producing
debug messages (--logger-debug).

The available message severity levels are debug, info, warning, error, fatal
and panic; info is the default. By default all log sources are enabled and
none of them produce any debug messages. For instance to pass only warnings
and errors, and turn on debugging for the supervisor, zram, and swapfc
sources you can use the options below:

  --logger-level=warning --logger-debug=supervisor,zram,swapfc

You can prefix a source or a list of source names with 'off:' or 'on:' to
toggle them on or off. For instance, to turn on debugging for all except the
zswap and kernelparam sources you can use the following option:

  --logger-debug=on:*,off:zswap,kernelparam

--logger-sources takes a list of the same form. As an alternative for '*' you
can also use 'all'.
`
