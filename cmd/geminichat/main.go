// Command geminichat is a terminal chat client for Google Gemini.
package main

import "github.com/diogo/geminichat/internal/commands"

func main() {
	commands.Execute()
}
