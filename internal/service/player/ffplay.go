package player

import "strconv"

// ffplayControl: у ffplay нет канала управления, пауза делается приостановкой процесса,
// громкость применяется при следующем запуске.
type ffplayControl struct{}

func (ffplayControl) args(_ *run, locator string, volume int) []string {
	return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-volume", strconv.Itoa(volume), locator}
}

func (ffplayControl) usesStdin() bool { return false }

func (ffplayControl) afterStart(*run, int) error { return nil }

func (ffplayControl) pause(r *run) error { return suspendProcess(r.cmd.Process) }

func (ffplayControl) resume(r *run) error { return continueProcess(r.cmd.Process) }

func (ffplayControl) setVolume(*run, int) error { return nil }

func (ffplayControl) position(*run) (float64, bool) { return 0, false }

func (ffplayControl) cleanup(*run) {}
