// Package tiss: cálculo del hash del epílogo (ans:epilogo/ans:hash).
// Regla ANS: MD5 sobre la concatenación, en orden de documento, del contenido textual de
// todos los elementos del mensaje, excluyendo el propio elemento hash y la firma ds:Signature.

package tiss

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ElementHash y ElementEpilogue nombres locales del epílogo.
const (
	ElementEpilogue = "epilogo"
	ElementHash     = "hash"
)

// ComputeHash calcula el hash MD5 (hex minúsculas) de un documento TISS ya parseado.
func ComputeHash(doc *etree.Document) (string, error) {
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("tiss: documento sin raíz")
	}
	var sb strings.Builder
	collectText(root, &sb)
	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), nil
}

// ComputeHashBytes parsea el XML y calcula su hash.
func ComputeHashBytes(xmlBytes []byte) (string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = CharsetReader
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return "", fmt.Errorf("tiss: parsear XML para hash: %w", err)
	}
	return ComputeHash(doc)
}

// VerifyHash compara el hash declarado en el epílogo con el calculado.
func VerifyHash(doc *etree.Document) (declared, computed string, err error) {
	computed, err = ComputeHash(doc)
	if err != nil {
		return "", "", err
	}
	if el := FindHashElement(doc); el != nil {
		declared = strings.TrimSpace(el.Text())
	}
	return declared, computed, nil
}

// FindHashElement devuelve ans:epilogo/ans:hash (o nil).
func FindHashElement(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	epilogue := childByLocal(root, ElementEpilogue)
	if epilogue == nil {
		return nil
	}
	return childByLocal(epilogue, ElementHash)
}

func collectText(el *etree.Element, sb *strings.Builder) {
	if el.Tag == "Signature" {
		return
	}
	if el.Tag == ElementHash {
		if parent := el.Parent(); parent != nil && parent.Tag == ElementEpilogue {
			return
		}
	}
	children := el.ChildElements()
	if len(children) == 0 {
		sb.WriteString(strings.TrimSpace(el.Text()))
		return
	}
	for _, child := range children {
		collectText(child, sb)
	}
}

func childByLocal(el *etree.Element, local string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}
