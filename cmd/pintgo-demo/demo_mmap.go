package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justanotherdot/pintgo/kdefs"
)

// mmapCmd reproduces spec.md section 8's S6: a 9,000-byte file maps to
// exactly three pages; munmap removes all three SPTEs.
func mmapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mmap",
		Short: "Run the 9000-byte file mmap scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel(cmd)
			pd := newSimplePageDir()
			spde := k.VM.PagedirCreate(pd)

			file := &memFile{length: 9000, firstSector: 16}
			const vaddr = uintptr(0x400000)

			id, err := k.VM.Mmap(spde, file, vaddr)
			if err != nil {
				return fmt.Errorf("mmap: %w", err)
			}
			fmt.Printf("mapped %d-byte file at %#x as mapid %d\n", file.length, vaddr, id)

			pageCount := 0
			for page := vaddr; page < vaddr+uintptr(kdefs.PgSize)*3; page += kdefs.PgSize {
				if _, err := k.VM.FindByVaddr(spde, page); err == nil {
					pageCount++
				}
			}
			fmt.Printf("resident pages found: %d (expected 3)\n", pageCount)

			if err := k.VM.Munmap(id); err != nil {
				return fmt.Errorf("munmap: %w", err)
			}

			afterCount := 0
			for page := vaddr; page < vaddr+uintptr(kdefs.PgSize)*3; page += kdefs.PgSize {
				if _, err := k.VM.FindByVaddr(spde, page); err == nil {
					afterCount++
				}
			}
			fmt.Printf("resident pages after munmap: %d (expected 0)\n", afterCount)
			return nil
		},
	}
}
