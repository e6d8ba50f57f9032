package vrrp

import (
	"log/slog"
	"time"

	"github.com/dantte-lp/ribd/internal/addrfamily"
	"github.com/dantte-lp/ribd/internal/task"
)

// OwnerPriority is the reserved priority value meaning "this router
// owns the virtual IP address" (RFC 5798): it always wins election and
// enters Master directly rather than via the master-down timer.
const OwnerPriority = 255

// skewTime is the portion of the advertisement interval that scales
// down the master-down timer in proportion to priority, so a
// higher-priority backup notices a dead master sooner.
func skewTime(priority uint8, advertInterval time.Duration) time.Duration {
	return time.Duration(256-int(priority)) * advertInterval / 256
}

func masterDownInterval(priority uint8, advertInterval time.Duration) time.Duration {
	return 3*advertInterval + skewTime(priority, advertInterval)
}

// VirtualRouter is one VRRP virtual router instance: the redundancy
// FSM, its priority, and the two timers RFC 5798 names (master-down in
// Backup, advertisement in Master).
type VirtualRouter struct {
	VRID     uint8
	Priority uint8
	Preempt  bool
	VIP      addrfamily.Address

	AdvertInterval time.Duration

	FSM *FSM

	masterDownTimer *task.TimeoutTask
	advertTimer     *task.TimeoutTask

	sendAdvert func(priority uint8)
	logger     *slog.Logger
}

// NewVirtualRouter constructs a VirtualRouter in Initialize. sendAdvert
// is invoked (with the local priority) every time Master must transmit
// an advertisement, on entry and on the advertisement timer.
func NewVirtualRouter(vrid uint8, priority uint8, preempt bool, vip addrfamily.Address, advertInterval time.Duration, sendAdvert func(priority uint8), logger *slog.Logger) *VirtualRouter {
	vr := &VirtualRouter{
		VRID:           vrid,
		Priority:       priority,
		Preempt:        preempt,
		VIP:            vip,
		AdvertInterval: advertInterval,
		sendAdvert:     sendAdvert,
		logger:         logger,
	}
	vr.FSM = NewFSM(vr.onTransition)
	return vr
}

// Startup enables the virtual router: the address owner enters Master
// directly, everyone else enters Backup and arms the master-down
// timer.
func (vr *VirtualRouter) Startup() {
	if vr.Priority == OwnerPriority {
		_ = vr.FSM.EnterMaster()
		return
	}
	if _, err := vr.FSM.Apply(EventStartup); err != nil {
		return
	}
	vr.armMasterDownTimer(masterDownInterval(vr.Priority, vr.AdvertInterval))
}

// Shutdown administratively disables the virtual router and cancels
// any running timer.
func (vr *VirtualRouter) Shutdown() {
	_, _ = vr.FSM.Apply(EventShutdown)
	vr.cancelTimers()
}

// ReceiveAdvertisement applies RFC 5798's comparison rules for an
// advertisement seen from routerAddr carrying senderPriority.
func (vr *VirtualRouter) ReceiveAdvertisement(senderPriority uint8, routerAddr addrfamily.Address) {
	switch vr.FSM.State() {
	case StateMaster:
		beats := senderPriority > vr.Priority ||
			(senderPriority == vr.Priority && routerAddr.Unwrap().Compare(vr.VIP.Unwrap()) > 0)
		if beats {
			_, _ = vr.FSM.Apply(EventHigherPriorityAdvertisement)
			vr.cancelAdvertTimer()
			vr.armMasterDownTimer(masterDownInterval(vr.Priority, vr.AdvertInterval))
		}

	case StateBackup:
		if senderPriority == 0 {
			// Master is relinquishing the address (RFC 5798 section
			// 6.4.2): skip straight to the skew-time wait instead of
			// the full master-down interval.
			vr.armMasterDownTimer(skewTime(vr.Priority, vr.AdvertInterval))
			return
		}
		if !vr.Preempt || senderPriority >= vr.Priority {
			_, _ = vr.FSM.Apply(EventLowerOrEqualPriorityAdvertisement)
			vr.armMasterDownTimer(masterDownInterval(vr.Priority, vr.AdvertInterval))
		}
		// Preempt enabled and sender's priority is lower: ignore the
		// advertisement and let the master-down timer keep running
		// toward this router taking over.
	}
}

// MasterDownTimerExpired transitions Backup to Master and starts
// sending advertisements on advertTimer.
func (vr *VirtualRouter) MasterDownTimerExpired() {
	if _, err := vr.FSM.Apply(EventMasterDownTimerExpired); err != nil {
		return
	}
}

func (vr *VirtualRouter) onTransition(from, to State) {
	if vr.logger != nil {
		vr.logger.Info("vrrp: state transition", slog.Int("vrid", int(vr.VRID)), slog.String("from", from.String()), slog.String("to", to.String()))
	}
	switch to {
	case StateMaster:
		vr.cancelMasterDownTimer()
		if vr.sendAdvert != nil {
			vr.sendAdvert(vr.Priority)
		}
		vr.armAdvertTimer()
	case StateBackup:
		vr.cancelAdvertTimer()
		vr.armMasterDownTimer(masterDownInterval(vr.Priority, vr.AdvertInterval))
	case StateInitialize:
		vr.cancelTimers()
	}
}

func (vr *VirtualRouter) armMasterDownTimer(d time.Duration) {
	if vr.masterDownTimer == nil {
		vr.masterDownTimer = task.NewTimeoutTask(d, vr.MasterDownTimerExpired)
		return
	}
	vr.masterDownTimer.Reset(d)
}

func (vr *VirtualRouter) armAdvertTimer() {
	fire := func() {
		if vr.FSM.State() != StateMaster {
			return
		}
		if vr.sendAdvert != nil {
			vr.sendAdvert(vr.Priority)
		}
		vr.armAdvertTimer()
	}
	// A TimeoutTask that has fired ignores Reset, so every period gets a
	// fresh timer.
	vr.cancelAdvertTimer()
	vr.advertTimer = task.NewTimeoutTask(vr.AdvertInterval, fire)
}

func (vr *VirtualRouter) cancelMasterDownTimer() {
	if vr.masterDownTimer != nil {
		vr.masterDownTimer.Cancel()
	}
}

func (vr *VirtualRouter) cancelAdvertTimer() {
	if vr.advertTimer != nil {
		vr.advertTimer.Cancel()
	}
}

func (vr *VirtualRouter) cancelTimers() {
	vr.cancelMasterDownTimer()
	vr.cancelAdvertTimer()
}
