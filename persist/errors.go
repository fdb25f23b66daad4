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

package persist

import (
	"fmt"

	liberr "github.com/jaustindavid/backupnet/errors"
)

const (
	ErrorFlush liberr.CodeError = iota + liberr.MinPkgPersist
	ErrorDecode
	ErrorRename
)

func init() {
	if liberr.ExistInMapMessage(ErrorFlush) {
		panic(fmt.Errorf("error code collision with package backupnet/persist"))
	}
	liberr.RegisterIdFctMessage(ErrorFlush, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorFlush:
		return "could not flush persistent dict to disk"
	case ErrorDecode:
		return "persistent dict file could not be decoded, quarantining"
	case ErrorRename:
		return "could not atomically rename persistent dict file into place"
	}

	return liberr.NullMessage
}
