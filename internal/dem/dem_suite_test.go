package dem_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDem(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dem Suite")
}
