package id_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/common/id"
)

var _ = Describe("New", func() {
	BeforeEach(func() {
		Expect(id.Init(id.NodeWorker)).To(Succeed())
	})

	It("generates increasing ids stamped with the current time", func() {
		a, b := id.New(), id.New()
		Expect(b).To(BeNumerically(">", a))
		Expect(id.Time(b)).To(BeTemporally("~", time.Now(), time.Second))
	})
})
