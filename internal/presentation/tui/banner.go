package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for Quarry.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Amber-to-copper gradient, like cut stone
	s1 := termenv.String("   __ _ _   _  __ _ _ __ _ __ _   _").Foreground(p.Color("#fcd34d"))
	s2 := termenv.String("  / _` | | | |/ _` | '__| '__| | | |").Foreground(p.Color("#fbbf24"))
	s3 := termenv.String(" | (_| | |_| | (_| | |  | |  | |_| |").Foreground(p.Color("#f59e0b"))
	s4 := termenv.String("  \\__, |\\__,_|\\__,_|_|  |_|   \\__, |").Foreground(p.Color("#d97706"))
	s5 := termenv.String("     |_|                      |___/").Foreground(p.Color("#b45309"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(termenv.String("  v"+version).Foreground(p.Color("#78716c")).Faint())
	fmt.Println()
}
