package main

import "errors"

var (
	errKeyRequired       = errors.New("possum: key is required")
	errOldNewKeyRequired = errors.New("possum: old and new key are required")
	errPrefixesRequired  = errors.New("possum: old and new prefix are required")
)
