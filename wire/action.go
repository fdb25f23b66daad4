/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package wire

// Action identifies one of the fixed RPCs a servlet accepts. An unrecognized
// action decodes to ActionUnknown, which every dispatcher treats as
// "respond null, keep the connection".
type Action string

const (
	ActionMetadata   Action = "metadata"
	ActionList       Action = "list"
	ActionClaim      Action = "claim"
	ActionUnclaim    Action = "unclaim"
	ActionUnclaimAll Action = "unclaim all"
	ActionUnknown    Action = ""
)

// ParseAction maps the wire string to a known Action, or ActionUnknown.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionMetadata, ActionList, ActionClaim, ActionUnclaim, ActionUnclaimAll:
		return Action(s)
	default:
		return ActionUnknown
	}
}

// Ack is the sole success payload for claim/unclaim/unclaim-all.
func Ack() Value { return Str("ack") }
