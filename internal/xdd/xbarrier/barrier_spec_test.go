package xbarrier_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
)

var _ = Describe("Barrier chain", func() {
	var reg *xbarrier.Registry

	BeforeEach(func() {
		reg = xbarrier.NewRegistry()
	})

	It("registers barriers into the chain on New and removes them on Destroy", func() {
		Expect(reg.Len()).To(Equal(0))
		b := reg.New("pass_start", 4)
		Expect(reg.Len()).To(Equal(1))
		b.Destroy()
		Expect(reg.Len()).To(Equal(0))
	})

	It("reports every undestroyed barrier as leaked", func() {
		reg.New("a", 1)
		reg.New("b", 1)
		err := reg.Close()
		Expect(err).To(HaveOccurred())
		leaked, ok := err.(*xbarrier.LeakedError)
		Expect(ok).To(BeTrue())
		Expect(leaked.Names).To(ConsistOf("a", "b"))
	})

	It("releases all occupants only once the threshold count has waited", func() {
		b := reg.New("endpass", 3)
		var wg sync.WaitGroup
		results := make(chan string, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := xbarrier.TargetWorkerName(0, i)
				Expect(b.Wait(context.Background(), xbarrier.Occupant{Type: xbarrier.Worker, Name: name})).To(Succeed())
				results <- name
			}(i)
		}
		wg.Wait()
		close(results)
		Expect(results).To(HaveLen(3))
	})
})
