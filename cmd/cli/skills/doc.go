// Package skills provides the ghbot skills command group.
package skills
