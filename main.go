package main

import "github.com/blindspot/blindspot/server"

func main() {
	server.Start()
}
