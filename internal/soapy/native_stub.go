//go:build !soapysdr

package soapy

import "errors"

func newNative() (Driver, error) {
	return nil, errors.New("native SoapySDR driver not built in (rebuild with -tags soapysdr)")
}
