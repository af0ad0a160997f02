package main

import "insightbot/internal/app"

func main() {
	app.Main()
}
