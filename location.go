package warden

import (
	"runtime"
	"strconv"
)

// Location records the call-site an operation originated from. It travels
// with the completion and is attached to every error the operation
// surfaces.
type Location struct {
	Function string
	File     string
	Line     int
}

func (loc Location) String() string {
	return loc.File + ":" + strconv.Itoa(loc.Line) + " (" + loc.Function + ")"
}

func capture(skip int) (loc Location) {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return
	}
	loc.File = file
	loc.Line = line
	if fn := runtime.FuncForPC(pc); fn != nil {
		loc.Function = fn.Name()
	}
	return
}
