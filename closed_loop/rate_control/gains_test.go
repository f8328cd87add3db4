package control

import (
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestGainBankProfilesAreIndependent(t *testing.T) {
	one, two := DefaultGains(), DefaultGains()
	two.Kp[Roll] = 0.3
	bank := NewGainBank(one, two)

	test.That(t, bank.Live(ProfileOne).Kp[Roll], test.ShouldEqual, one.Kp[Roll])
	test.That(t, bank.Live(ProfileTwo).Kp[Roll], test.ShouldEqual, 0.3)

	bank.SetGain(ProfileTwo, Yaw, TermD, 0.9)
	test.That(t, bank.Live(ProfileTwo).Get(Yaw, TermD), test.ShouldEqual, 0.9)
	test.That(t, bank.Live(ProfileOne).Get(Yaw, TermD), test.ShouldEqual, one.Kd[Yaw])

	// Live hands out copies
	live := bank.Live(ProfileOne)
	live.Ki[Pitch] = 99
	test.That(t, bank.Live(ProfileOne).Ki[Pitch], test.ShouldEqual, one.Ki[Pitch])
}

func TestGainBankBaseline(t *testing.T) {
	bank := NewGainBank(DefaultGains(), DefaultGains())
	base := bank.Baseline()

	got := bank.ScaleGain(ProfileOne, Roll, TermP, 1.1)
	test.That(t, got, test.ShouldAlmostEqual, base.Kp[Roll]*1.1, 1e-12)
	test.That(t, bank.Baseline().Kp[Roll], test.ShouldEqual, base.Kp[Roll])

	// multipliers are applied against the baseline, not the tuned value
	bank.ApplyMultiplier(ProfileOne, Roll, TermP, 0.5)
	test.That(t, bank.Live(ProfileOne).Kp[Roll], test.ShouldAlmostEqual, base.Kp[Roll]*0.5, 1e-12)

	bank.ScaleGain(ProfileOne, Pitch, TermI, 2)
	bank.SaveBaseline(ProfileOne)
	test.That(t, bank.Baseline().Ki[Pitch], test.ShouldAlmostEqual, base.Ki[Pitch]*2, 1e-12)
}

func TestGainBankConcurrentAccess(t *testing.T) {
	bank := NewGainBank(DefaultGains(), DefaultGains())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			bank.SetGain(ProfileOne, Axis(i%NumAxes), Term(i%3), float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = bank.Live(ProfileOne)
		}
	}()
	wg.Wait()
	test.That(t, bank.Live(ProfileOne).Get(Axis(999%NumAxes), Term(999%3)), test.ShouldEqual, 999.0)
}

func TestTermString(t *testing.T) {
	test.That(t, TermP.String(), test.ShouldEqual, "P")
	test.That(t, TermD.String(), test.ShouldEqual, "D")
}
