// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"errors"

	"gopkg.in/check.v1"
)

type locusSuite struct{}

var _ = check.Suite(&locusSuite{})

func (s *locusSuite) TestParseLocus(c *check.C) {
	l, err := parseLocus("chr7:12345-12400")
	c.Assert(err, check.IsNil)
	c.Check(l, check.Equals, locus{Chrom: "chr7", Start: 12345, End: 12400})

	l, err = parseLocus("chrUn_KI270742v1:5-5")
	c.Assert(err, check.IsNil)
	c.Check(l.Chrom, check.Equals, "chrUn_KI270742v1")

	for _, bad := range []string{"chr7_bad", "chr7:100", "chr7:200-100", ":1-2", "chr7:1-2 ", "chr7:a-b"} {
		_, err := parseLocus(bad)
		var merr *MalformedLocusError
		c.Check(errors.As(err, &merr), check.Equals, true, check.Commentf("%q", bad))
		if merr != nil {
			c.Check(merr.ID, check.Equals, bad)
		}
	}
}
