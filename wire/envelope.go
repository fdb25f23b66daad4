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

import (
	liberr "github.com/jaustindavid/backupnet/errors"
)

// Request is the immutable value form of the wire envelope:
// [action, source_context, client_id, arg1, arg2, ...].
type Request struct {
	Action   Action
	Source   string
	ClientID string
	Args     []Value
}

// Encode renders the Request as the JSON array the transport actually sends.
func (r Request) Encode() Value {
	list := make([]Value, 0, 3+len(r.Args))
	list = append(list, Str(string(r.Action)), Str(r.Source), Str(r.ClientID))
	list = append(list, r.Args...)
	return List(list...)
}

// DecodeRequest parses a received Value back into a Request. An envelope
// missing the action or source_context slot is an error; a recognized but
// empty args tail is fine (metadata/list/unclaim_all take no arguments).
func DecodeRequest(v Value) (Request, error) {
	list, ok := v.List()
	if !ok || len(list) < 2 {
		return Request{}, liberr.New(uint16(ErrorEnvelopeTooShort), getMessage(ErrorEnvelopeTooShort))
	}

	actionStr, _ := list[0].Str()
	source, _ := list[1].Str()

	var clientID string
	if len(list) > 2 {
		clientID, _ = list[2].Str()
	}

	var args []Value
	if len(list) > 3 {
		args = list[3:]
	}

	return Request{
		Action:   ParseAction(actionStr),
		Source:   source,
		ClientID: clientID,
		Args:     args,
	}, nil
}

// Response is the value returned for a Request. The vocabulary is Ack() for
// success or Null() for "nothing to do" / failure (see DESIGN.md).
type Response = Value
