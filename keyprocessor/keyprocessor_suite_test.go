package keyprocessor_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestKeyProcessor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "keyprocessor Suite")
}
