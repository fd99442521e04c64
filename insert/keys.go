package insert

import (
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

type keystroke struct {
	code  int
	shift bool
}

// letterKeys and digitKeys index into the portable virtual-key range.
var letterKeys = [26]int{
	keybd_event.VK_A, keybd_event.VK_B, keybd_event.VK_C, keybd_event.VK_D,
	keybd_event.VK_E, keybd_event.VK_F, keybd_event.VK_G, keybd_event.VK_H,
	keybd_event.VK_I, keybd_event.VK_J, keybd_event.VK_K, keybd_event.VK_L,
	keybd_event.VK_M, keybd_event.VK_N, keybd_event.VK_O, keybd_event.VK_P,
	keybd_event.VK_Q, keybd_event.VK_R, keybd_event.VK_S, keybd_event.VK_T,
	keybd_event.VK_U, keybd_event.VK_V, keybd_event.VK_W, keybd_event.VK_X,
	keybd_event.VK_Y, keybd_event.VK_Z,
}

var digitKeys = [10]int{
	keybd_event.VK_0, keybd_event.VK_1, keybd_event.VK_2, keybd_event.VK_3,
	keybd_event.VK_4, keybd_event.VK_5, keybd_event.VK_6, keybd_event.VK_7,
	keybd_event.VK_8, keybd_event.VK_9,
}

// keyFor maps a rune to a keystroke that works on every platform keymap.
// Punctuation varies by layout, so anything beyond letters, digits,
// space, and newline goes through the clipboard instead.
func keyFor(r rune) (keystroke, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return keystroke{code: letterKeys[r-'a']}, true
	case r >= 'A' && r <= 'Z':
		return keystroke{code: letterKeys[r-'A'], shift: true}, true
	case r >= '0' && r <= '9':
		return keystroke{code: digitKeys[r-'0']}, true
	case r == ' ':
		return keystroke{code: keybd_event.VK_SPACE}, true
	case r == '\n':
		return keystroke{code: keybd_event.VK_ENTER}, true
	}
	return keystroke{}, false
}

// typeable reports whether every rune in text has a portable key mapping.
func typeable(text string) bool {
	for _, r := range text {
		if _, ok := keyFor(r); !ok {
			return false
		}
	}
	return true
}

// typeKeystrokes emits one synthetic key event per rune.
func typeKeystrokes(text string) error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	for _, r := range text {
		ks, ok := keyFor(r)
		if !ok {
			return pasteClipboard(text)
		}
		kb.Clear()
		kb.SetKeys(ks.code)
		kb.HasSHIFT(ks.shift)
		if err := kb.Launching(); err != nil {
			return err
		}
	}
	return nil
}

// pasteClipboard places text on the clipboard, sends the platform paste
// shortcut, and restores the previous clipboard contents.
func pasteClipboard(text string) error {
	prev, _ := clipboard.ReadAll()
	if err := clipboard.WriteAll(text); err != nil {
		return err
	}
	time.Sleep(80 * time.Millisecond)

	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	if err := kb.Launching(); err != nil {
		return err
	}

	// Let the target consume the paste before the clipboard changes back.
	time.Sleep(120 * time.Millisecond)
	_ = clipboard.WriteAll(prev)
	return nil
}
