package main

import (
	"log"

	"github.com/xingyunzhou/augment2api/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
