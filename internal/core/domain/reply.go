// Copyright 2025.
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

package domain

// Choice is a button offered to the operator. Data comes back verbatim when pressed.
type Choice struct {
	Label string
	Data  string
}

// Reply is one message to the operator.
type Reply struct {
	Text    string
	Choices []Choice
	// Rows, when set, is a table rendered after Text. The first row is the header.
	Rows [][]string
	// Preformatted asks the front-end to render Text in a monospace block.
	Preformatted bool
}

// Callback data prefixes for button presses.
const (
	ChoiceMenu        = "menu:"
	ChoicePanel       = "panel:"
	ChoiceDeletePanel = "delete:"
	ChoiceHTTPS       = "https:"
)

// Menu actions, used both as slash commands and as menu button data.
const (
	ActionStart       = "start"
	ActionAddPanel    = "add_panel"
	ActionAddNode     = "add_node"
	ActionListPanels  = "list_panels"
	ActionDeletePanel = "delete_panel"
	ActionCancel      = "cancel"
)
