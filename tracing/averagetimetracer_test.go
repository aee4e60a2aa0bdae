package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/lanecoalescer/sim"
	"go.uber.org/mock/gomock"
)

var _ = Describe("AverageTimeTracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		tracer     *AverageTimeTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		tracer = NewAverageTimeTracer(timeTeller, KindFilter("req_in"))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should average completed tasks", func() {
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(1))
		tracer.StartTask(Task{ID: "a", Kind: "req_in"})
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(2))
		tracer.StartTask(Task{ID: "b", Kind: "req_in"})

		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(3))
		tracer.EndTask(Task{ID: "a"})
		timeTeller.EXPECT().CurrentTime().Return(sim.VTimeInSec(6))
		tracer.EndTask(Task{ID: "b"})

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageTime()).To(BeNumerically("~", 3, 1e-9))
	})

	It("should ignore filtered and unknown tasks", func() {
		tracer.StartTask(Task{ID: "c", Kind: "req_out"})
		tracer.EndTask(Task{ID: "c"})

		Expect(tracer.TotalCount()).To(Equal(uint64(0)))
	})
})

var _ = Describe("CountTracer", func() {
	It("should count by kind", func() {
		tracer := NewCountTracer(nil)

		tracer.StartTask(Task{ID: "a", Kind: "coalesce"})
		tracer.StartTask(Task{ID: "b", Kind: "pass_through"})
		tracer.StartTask(Task{ID: "c", Kind: "coalesce"})
		tracer.EndTask(Task{ID: "a"})
		tracer.EndTask(Task{ID: "x"})

		Expect(tracer.Kinds()).To(Equal([]string{"coalesce", "pass_through"}))
		Expect(tracer.Started("coalesce")).To(Equal(uint64(2)))
		Expect(tracer.Completed("coalesce")).To(Equal(uint64(1)))
		Expect(tracer.Completed("pass_through")).To(Equal(uint64(0)))
	})
})
