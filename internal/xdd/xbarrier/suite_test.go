package xbarrier_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestXBarrierSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "xbarrier suite")
}
