package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInsufficientStock aborts a sale transaction when a guarded stock
// decrement matches no row.
var ErrorInsufficientStock = errors.New("insufficient stock")
