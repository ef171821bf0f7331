package rdmatransport

import "errors"

var errRefcountUnderflow = errors.New("rdmatransport: buffer released past zero references")
