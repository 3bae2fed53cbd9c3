package efirma

import (
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidDataContentType          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidEncryptedDataContentType = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}

	oidKeyBag             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 1}
	oidShroudedKeyBag     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 2}
	oidCertBag            = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 3}
	oidSafeContentsBag    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 6}
	oidFriendlyNameAttr   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 20}
	oidLocalKeyIDAttr     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 21}
	explicitContextZero   = cbasn1.Tag(0).ContextSpecific().Constructed()
	implicitPrimitiveZero = cbasn1.Tag(0).ContextSpecific()
)

// maxSafeContentsDepth bounds nested safeContentsBag recursion.
const maxSafeContentsDepth = 4

// pfxInventory is what a walk over a PKCS#12 container found. Sealed counts
// encrypted contents the walk could not open; when it is zero the bag counts
// are complete.
type pfxInventory struct {
	certBags  int
	keyBags   int
	sealed    int
	algorithm string
	attrs     bagAttributes
}

type bagAttributes struct {
	friendlyName string
	localKeyID   string
}

// complete reports whether every bag in the container was seen.
func (inv pfxInventory) complete() bool { return inv.sealed == 0 }

// inspectPFX walks the authenticated safe of a DER PKCS#12 container and
// counts its bags. Encrypted contents using the PKCS#12 triple DES scheme are
// opened with password; others are counted as sealed. The MAC is not checked.
// Algorithm is taken from the first shrouded key bag, or else from the first
// encrypted content.
func inspectPFX(data []byte, password string) (pfxInventory, error) {
	var inv pfxInventory
	input := cryptobyte.String(data)
	var pfx, authSafe cryptobyte.String
	var version int
	if !input.ReadASN1(&pfx, cbasn1.SEQUENCE) ||
		!pfx.ReadASN1Integer(&version) ||
		!pfx.ReadASN1(&authSafe, cbasn1.SEQUENCE) {
		return inv, errors.New("not a PKCS#12 PFX")
	}
	if version != 3 {
		return inv, fmt.Errorf("unsupported PFX version %d", version)
	}

	contentType, content, err := readContentInfo(authSafe)
	if err != nil {
		return inv, fmt.Errorf("authSafe: %w", err)
	}
	if !contentType.Equal(oidDataContentType) {
		return inv, fmt.Errorf("authSafe content type %s is not data", contentType)
	}
	var safes cryptobyte.String
	if !content.ReadASN1(&safes, cbasn1.OCTET_STRING) {
		return inv, errors.New("authSafe content is not an OCTET STRING")
	}
	var seq cryptobyte.String
	if !safes.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return inv, errors.New("invalid AuthenticatedSafe")
	}

	var contentAlgorithm string
	for !seq.Empty() {
		var ci cryptobyte.String
		if !seq.ReadASN1(&ci, cbasn1.SEQUENCE) {
			return inv, errors.New("invalid ContentInfo in AuthenticatedSafe")
		}
		safeContents, scheme, err := openContentInfo(ci, password)
		if scheme != nil && contentAlgorithm == "" {
			contentAlgorithm = scheme.name()
		}
		switch {
		case errors.Is(err, errSealed):
			inv.sealed++
			continue
		case err != nil:
			return inv, err
		}
		var part pfxInventory
		if err := part.readSafeContents(safeContents, 0); err != nil {
			// Decrypting with a wrong password can pass the padding check.
			if scheme != nil {
				inv.sealed++
				continue
			}
			return inv, err
		}
		inv.merge(part)
	}
	if inv.algorithm == "" {
		inv.algorithm = contentAlgorithm
	}
	return inv, nil
}

var errSealed = errors.New("encrypted content not opened")

func (inv *pfxInventory) merge(part pfxInventory) {
	inv.certBags += part.certBags
	inv.keyBags += part.keyBags
	inv.sealed += part.sealed
	if inv.algorithm == "" {
		inv.algorithm = part.algorithm
	}
	if inv.attrs.friendlyName == "" {
		inv.attrs.friendlyName = part.attrs.friendlyName
	}
	if inv.attrs.localKeyID == "" {
		inv.attrs.localKeyID = part.attrs.localKeyID
	}
}

// readContentInfo reads a ContentInfo SEQUENCE body and returns its type and
// the contents of its explicit [0] element.
func readContentInfo(ci cryptobyte.String) (asn1.ObjectIdentifier, cryptobyte.String, error) {
	var contentType asn1.ObjectIdentifier
	var content cryptobyte.String
	if !ci.ReadASN1ObjectIdentifier(&contentType) ||
		!ci.ReadASN1(&content, explicitContextZero) {
		return nil, nil, errors.New("invalid ContentInfo")
	}
	return contentType, content, nil
}

// openContentInfo returns the SafeContents DER held by one element of the
// AuthenticatedSafe, decrypting it when needed. The scheme is returned for
// encrypted data even when it could not be opened.
func openContentInfo(ci cryptobyte.String, password string) ([]byte, *pbeScheme, error) {
	contentType, content, err := readContentInfo(ci)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case contentType.Equal(oidDataContentType):
		var safeContents []byte
		if !content.ReadASN1Bytes(&safeContents, cbasn1.OCTET_STRING) {
			return nil, nil, errors.New("data content is not an OCTET STRING")
		}
		return safeContents, nil, nil

	case contentType.Equal(oidEncryptedDataContentType):
		var encData, encInfo cryptobyte.String
		var version int
		var innerType asn1.ObjectIdentifier
		if !content.ReadASN1(&encData, cbasn1.SEQUENCE) ||
			!encData.ReadASN1Integer(&version) ||
			!encData.ReadASN1(&encInfo, cbasn1.SEQUENCE) ||
			!encInfo.ReadASN1ObjectIdentifier(&innerType) {
			return nil, nil, errors.New("invalid EncryptedData")
		}
		scheme, err := readPBEScheme(&encInfo)
		if err != nil {
			return nil, nil, fmt.Errorf("EncryptedData: %w", err)
		}
		if !scheme.isPKCS12TripleDES() {
			return nil, &scheme, errSealed
		}
		var ciphertext []byte
		if !encInfo.ReadASN1Bytes(&ciphertext, implicitPrimitiveZero) {
			return nil, &scheme, errSealed
		}
		plain, err := decryptPKCS12TripleDES(scheme, password, ciphertext)
		if err != nil {
			return nil, &scheme, errSealed
		}
		return plain, &scheme, nil

	default:
		return nil, nil, errSealed
	}
}

func (inv *pfxInventory) readSafeContents(der []byte, depth int) error {
	if depth > maxSafeContentsDepth {
		return errors.New("safeContentsBag nesting too deep")
	}
	input := cryptobyte.String(der)
	var bags cryptobyte.String
	if !input.ReadASN1(&bags, cbasn1.SEQUENCE) {
		return errors.New("invalid SafeContents")
	}
	for !bags.Empty() {
		var bag, value cryptobyte.String
		var bagID asn1.ObjectIdentifier
		if !bags.ReadASN1(&bag, cbasn1.SEQUENCE) ||
			!bag.ReadASN1ObjectIdentifier(&bagID) ||
			!bag.ReadASN1(&value, explicitContextZero) {
			return errors.New("invalid SafeBag")
		}

		switch {
		case bagID.Equal(oidCertBag):
			inv.certBags++
		case bagID.Equal(oidKeyBag):
			inv.keyBags++
		case bagID.Equal(oidShroudedKeyBag):
			inv.keyBags++
			var epki cryptobyte.String
			if !value.ReadASN1(&epki, cbasn1.SEQUENCE) {
				return errors.New("invalid pkcs8ShroudedKeyBag")
			}
			scheme, err := readPBEScheme(&epki)
			if err != nil {
				return fmt.Errorf("pkcs8ShroudedKeyBag: %w", err)
			}
			if inv.algorithm == "" {
				inv.algorithm = scheme.name()
			}
		case bagID.Equal(oidSafeContentsBag):
			var nested cryptobyte.String
			if !value.ReadASN1Element(&nested, cbasn1.SEQUENCE) {
				return errors.New("invalid safeContentsBag")
			}
			if err := inv.readSafeContents(nested, depth+1); err != nil {
				return err
			}
		}

		if bag.PeekASN1Tag(cbasn1.SET) {
			var attrs cryptobyte.String
			if !bag.ReadASN1(&attrs, cbasn1.SET) {
				return errors.New("invalid SafeBag attributes")
			}
			inv.attrs.read(attrs)
		}
	}
	return nil
}

// read records the first friendlyName and localKeyId found in a bag's
// attribute set. Unreadable attributes are skipped.
func (a *bagAttributes) read(attrs cryptobyte.String) {
	for !attrs.Empty() {
		var attr, values cryptobyte.String
		var id asn1.ObjectIdentifier
		if !attrs.ReadASN1(&attr, cbasn1.SEQUENCE) ||
			!attr.ReadASN1ObjectIdentifier(&id) ||
			!attr.ReadASN1(&values, cbasn1.SET) {
			return
		}
		var raw []byte
		switch {
		case id.Equal(oidFriendlyNameAttr) && a.friendlyName == "":
			if values.ReadASN1Bytes(&raw, cbasn1.Tag(30)) {
				if name, err := decodeBMPString(raw); err == nil {
					a.friendlyName = name
				}
			}
		case id.Equal(oidLocalKeyIDAttr) && a.localKeyID == "":
			if values.ReadASN1Bytes(&raw, cbasn1.OCTET_STRING) {
				a.localKeyID = strings.ToUpper(hex.EncodeToString(raw))
			}
		}
	}
}
