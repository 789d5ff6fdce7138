package asap

import "encoding/xml"

// noGroup is the PartOfGroup value for top-level groups and unlabelled annotations.
const noGroup = "None"

// Geometry type names.
const (
	TypePolygon  = "Polygon"
	TypePointSet = "PointSet"
	TypeCell     = "Cell"
)

type xmlDocument struct {
	XMLName     xml.Name       `xml:"ASAP_Annotations"`
	Annotations xmlAnnotations `xml:"Annotations"`
	Groups      xmlGroups      `xml:"AnnotationGroups"`
}

type xmlAnnotations struct {
	Name        string          `xml:"Name,attr"`
	Description string          `xml:"Description,attr"`
	X           int             `xml:"X,attr"`
	Y           int             `xml:"Y,attr"`
	W           int             `xml:"W,attr"`
	H           int             `xml:"H,attr"`
	Items       []xmlAnnotation `xml:"Annotation"`
}

type xmlAnnotation struct {
	Name        string           `xml:"Name,attr"`
	Type        string           `xml:"Type,attr"`
	PartOfGroup string           `xml:"PartOfGroup,attr"`
	Color       string           `xml:"Color,attr"`
	Coordinates []xmlCoordinates `xml:"Coordinates"`
}

type xmlCoordinates struct {
	Items []xmlCoordinate `xml:"Coordinate"`
}

// xmlCoordinate keeps X and Y as strings so that a missing or non-numeric
// attribute can be skipped instead of failing the whole document.
type xmlCoordinate struct {
	Order string `xml:"Order,attr"`
	X     string `xml:"X,attr"`
	Y     string `xml:"Y,attr"`
}

type xmlGroups struct {
	Items []xmlGroup `xml:"Group"`
}

type xmlGroup struct {
	Name        string `xml:"Name,attr"`
	PartOfGroup string `xml:"PartOfGroup,attr"`
	Color       string `xml:"Color,attr"`
}

func marshalDocument(doc *xmlDocument) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}
