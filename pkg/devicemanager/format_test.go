package devicemanager

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/carina-io/kdisk/pkg/devicemanager/types"
)

var _ = Describe("Format", func() {
	var (
		svc *fakeService
		dm  *DeviceManager
		ctx context.Context
	)

	sessionsReleased := func() {
		opened, closed := svc.counts()
		Expect(closed).To(Equal(opened))
	}

	BeforeEach(func() {
		svc = newFakeService(standardObjects()...)
		dm = newTestManager(svc)
		ctx = context.Background()
	})

	Context("device cannot be resolved", func() {
		It("fails before returning when the path does not exist", func() {
			task := dm.Format(ctx, FormatRequest{Device: "/dev/nope", Type: "ext4"})
			Expect(task.Done()).To(BeClosed())
			Expect(task.Status()).To(Equal(StatusFailed))
			Expect(task.State()).To(Equal(StateTerminal))

			opened, _ := svc.counts()
			Expect(opened).To(Equal(0))
			Expect(svc.formatCalls()).To(BeEmpty())
		})

		It("fails when udisks has no object for it", func() {
			task := dm.Format(ctx, FormatRequest{Device: "/dev/loop9", Type: "ext4"})
			Expect(task.Done()).To(BeClosed())
			Expect(task.Status()).To(Equal(StatusFailed))
			sessionsReleased()
		})

		It("fails when the bus is unreachable", func() {
			svc.connectErr = errors.New("dial unix /run/dbus/system_bus_socket: connect: no such file or directory")
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb1", Type: "ext4"})
			Expect(task.Status()).To(Equal(StatusFailed))
		})
	})

	Context("device without filesystem", func() {
		It("formats without unmounting", func() {
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb", Type: "ext4", Label: "DATA"})
			Eventually(task.Done()).Should(BeClosed())

			Expect(task.Status()).To(Equal(StatusSucceeded))
			Expect(svc.unmountCalls()).To(BeEmpty())

			calls := svc.formatCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].path).To(Equal(sdbPath))
			Expect(calls[0].fsType).To(Equal("ext4"))
			Expect(calls[0].options).To(HaveKey(types.OptionLabel))
			Expect(calls[0].options).To(HaveKey(types.OptionTakeOwnership))
			Expect(calls[0].options).To(HaveKey(types.OptionUpdatePartitionType))
			Expect(calls[0].options).NotTo(HaveKey(types.OptionErase))
			sessionsReleased()
		})
	})

	Context("device with filesystem", func() {
		It("unmounts before formatting", func() {
			svc.unmountGate = make(chan struct{})
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb1", Type: "vfat", Label: "STICK"})

			Eventually(task.State).Should(Equal(StateUnmounting))
			Expect(task.Status()).To(Equal(StatusPending))
			Expect(svc.formatCalls()).To(BeEmpty())

			close(svc.unmountGate)
			Eventually(task.Done()).Should(BeClosed())
			Expect(task.Status()).To(Equal(StatusSucceeded))
			Expect(svc.unmountCalls()).To(Equal([]dbus.ObjectPath{sdb1Path}))
			Expect(svc.formatCalls()).To(HaveLen(1))
			sessionsReleased()
		})

		It("formats even when the unmount fails", func() {
			svc.unmountErr = errors.New("org.freedesktop.UDisks2.Error.NotMounted")
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb1", Type: "exfat"})
			Eventually(task.Done()).Should(BeClosed())

			Expect(task.Status()).To(Equal(StatusSucceeded))
			Expect(svc.formatCalls()).To(HaveLen(1))
		})
	})

	Context("unlocked encrypted container", func() {
		It("formats the crypto backing device", func() {
			task := dm.Format(ctx, FormatRequest{Device: "/dev/mapper/luks-sdb", Type: "ext4"})
			Eventually(task.Done()).Should(BeClosed())

			Expect(task.Status()).To(Equal(StatusSucceeded))
			calls := svc.formatCalls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].path).To(Equal(sdbPath))
			Expect(calls[0].path).NotTo(Equal(dm0Path))
		})
	})

	Context("format fails", func() {
		It("reports failure", func() {
			svc.formatErr = errors.New("org.freedesktop.UDisks2.Error.DeviceBusy")
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb", Type: "ext4"})

			status, err := task.Wait(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(StatusFailed))
			sessionsReleased()
		})

		It("fails when the format timeout passes", func() {
			svc.formatGate = make(chan struct{})
			dm.FormatTimeout = 50 * time.Millisecond
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb", Type: "ext4"})

			Eventually(task.Done(), time.Second).Should(BeClosed())
			Expect(task.Status()).To(Equal(StatusFailed))
			sessionsReleased()
		})

		It("fails when the caller context is canceled", func() {
			svc.formatGate = make(chan struct{})
			cctx, cancel := context.WithCancel(ctx)
			task := dm.Format(cctx, FormatRequest{Device: "/dev/sdb", Type: "ext4"})
			Eventually(task.State).Should(Equal(StateFormatting))

			cancel()
			Eventually(task.Done()).Should(BeClosed())
			Expect(task.Status()).To(Equal(StatusFailed))
		})
	})

	Context("result", func() {
		It("stays pending until the format returns", func() {
			svc.formatGate = make(chan struct{})
			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb", Type: "ext4"})

			Eventually(task.State).Should(Equal(StateFormatting))
			Consistently(task.Status, 100*time.Millisecond).Should(Equal(StatusPending))
			Expect(task.Duration()).To(BeZero())

			wctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			status, err := task.Wait(wctx)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(status).To(Equal(StatusPending))

			close(svc.formatGate)
			Eventually(task.Done()).Should(BeClosed())
			Expect(task.Status()).To(Equal(StatusSucceeded))
		})

		It("runs the completion callback once with the final status", func() {
			var calls int32
			var got atomic.Value
			task := dm.Format(ctx, FormatRequest{
				Device: "/dev/sdb",
				Type:   "ext4",
				OnComplete: func(s Status) {
					atomic.AddInt32(&calls, 1)
					got.Store(s)
				},
			})
			Eventually(task.Done()).Should(BeClosed())
			Eventually(func() int32 { return atomic.LoadInt32(&calls) }).Should(Equal(int32(1)))
			Expect(got.Load()).To(Equal(StatusSucceeded))

			task.finish(StatusFailed, time.Now())
			Expect(task.Status()).To(Equal(StatusSucceeded))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})

		It("measures the duration with the manager clock", func() {
			start := time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC)
			fake := clocktesting.NewFakePassiveClock(start)
			dm.Clock = fake
			svc.formatGate = make(chan struct{})

			task := dm.Format(ctx, FormatRequest{Device: "/dev/sdb", Type: "ext4"})
			Eventually(task.State).Should(Equal(StateFormatting))
			fake.SetTime(start.Add(90 * time.Second))
			close(svc.formatGate)

			Eventually(task.Done()).Should(BeClosed())
			Expect(task.StartedAt()).To(Equal(start))
			Expect(task.Duration()).To(Equal(90 * time.Second))
		})
	})
})

var _ = Describe("Status", func() {
	It("keeps the numeric values", func() {
		Expect(int(StatusPending)).To(Equal(0))
		Expect(int(StatusSucceeded)).To(Equal(1))
		Expect(int(StatusFailed)).To(Equal(-1))
		Expect(StatusFailed.String()).To(Equal("failed"))
		Expect(StateUnmounting.String()).To(Equal("unmounting"))
	})
})
