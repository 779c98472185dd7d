package player

import "strconv"

// vlcControl управляет VLC через rc-интерфейс на stdin.
type vlcControl struct{}

func (vlcControl) args(_ *run, locator string, _ int) []string {
	return []string{"-I", "rc", "--no-video", "--play-and-exit", locator}
}

func (vlcControl) usesStdin() bool { return true }

func (c vlcControl) afterStart(r *run, volume int) error { return c.setVolume(r, volume) }

func (vlcControl) pause(r *run) error { return r.send("pause") }

func (vlcControl) resume(r *run) error { return r.send("play") }

func (vlcControl) setVolume(r *run, level int) error {
	return r.send("volume " + strconv.Itoa(vlcVolume(level)))
}

func (vlcControl) position(*run) (float64, bool) { return 0, false }

func (vlcControl) cleanup(*run) {}

// vlcVolume переводит 0-100 в шкалу rc, где 256 = 100%.
func vlcVolume(level int) int { return clampVolume(level) * 256 / 100 }
